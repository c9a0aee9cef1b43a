// Package normalisers provides implementations of the Normaliser
// interface for the raw formats the convert step accepts. Each
// normaliser knows how to extract plain text from one family of file
// extensions.
//
// Normalisers are wired into the conversion service at startup; the
// service routes each file to a normaliser by extension.
package normalisers
