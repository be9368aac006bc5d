// Package language normalizes the language tags that flow through the
// pipeline: configured target languages, detector responses and subtitle
// file names all collapse to lowercase ISO 639-1 codes here.
package language
