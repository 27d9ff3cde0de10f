// Package normalisers provides document loaders that turn reference files
// into plain-text documents ready for chunking.
//
// Each loader knows how to extract text from one file format.
package normalisers
