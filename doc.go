// Package ipf reads IPF archives as a read-only virtual filesystem.
//
// An IPF archive is a single file: raw DEFLATE payloads, a flat list of
// variable-length records describing them, and a 24-byte trailer that
// locates the list. The format has no index and no directories; the
// hierarchy is implied by "/" separators in record paths.
//
// # Quick Start
//
// Open an archive and read a file:
//
//	a, err := ipf.Open("assets.ipf")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	e, err := a.LookupString("/ui/icon.png")
//	if err != nil {
//	    return err // errors.Is(err, ipf.ErrNotFound) for a missing path
//	}
//	c, err := a.OpenContent(e, ipf.ReadOnly)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
// List records below a directory:
//
//	l, err := a.ListEntries(ipf.MustParsePath("/ui"), nil)
//	if err != nil {
//	    return err
//	}
//	for l.Next() {
//	    fmt.Println(l.Path())
//	}
//	if err := l.Err(); err != nil {
//	    return err
//	}
//
// # Standard Library Integration
//
// Archive implements fs.FS, fs.StatFS, fs.ReadFileFS and fs.ReadDirFS, so it
// works with fs.WalkDir, http.FS and template.ParseFS. fs.FS names map to
// virtual paths by prefixing "/".
//
// # Content
//
// OpenContent inflates one record into a Content: a seekable, random-access
// view that can also accept scratch writes (ReadWriteScratch) which are
// never written back. Small contents live in memory; contents above the
// spill threshold live in a temporary file that Close removes. Closing the
// Archive closes any Content still open.
//
// # Remote Archives
//
// Any ByteSource works with New. The http subpackage provides one backed by
// HTTP range requests; the cache subpackages avoid repeated inflates.
package ipf
