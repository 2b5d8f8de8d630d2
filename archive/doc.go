// Package archive handles intake of an export submission.
//
// An Archive is created from a caller-supplied path, extracted into a freshly
// created process-private directory, and removed again by Cleanup. The archive
// is adversarial input: links, device nodes, absolute names and path traversal
// entries fail extraction, and files are opened with O_NOFOLLOW|O_EXCL so an
// entry can never write through or over another one.
//
// Basic usage:
//
//	a, err := archive.New(path, cfg, logger)
//	if err != nil {
//		return err // StatusError carrying ERROR_FILE_NOT_FOUND
//	}
//	defer a.Cleanup()
//
//	if err := a.Extract(); err != nil {
//		return err // StatusError carrying ERROR_EXTRACTION
//	}
//
//	md, err := metadata.Parse(a.WorkDir())
package archive
