// Package textutil provides filename and label helpers shared by the media,
// executor, and store packages.
//
// Filenames arriving from uploads or library folders may be URL-escaped or in
// a decomposed Unicode form depending on the client that produced them.
// NormalizeLabel folds both into a canonical NFC string so labels and output
// names compare equal regardless of origin.
package textutil
