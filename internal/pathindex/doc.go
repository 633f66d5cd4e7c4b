// Package pathindex turns a short list of base directories into the flat,
// depth-bounded list of directories the resolver probes. Base directories
// keep their configured order and each is immediately followed by its own
// subdirectories, so earlier configuration always wins on ties.
package pathindex
