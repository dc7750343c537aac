// Package framestore persists captured frames.
//
// A Sink stores one encoded image under a slash-separated key. The
// experiment orchestrator builds keys of the form
//
//	{YYYY-MM-DD}/{experiment}/{filename}.{ext}
//
// with Key, and hands each frame to the configured sink:
//
//	┌────────────┐   Put(key, img)   ┌──────────┐
//	│ experiment │ ────────────────▶ │ FileSink │  {root}/{key}
//	└────────────┘                   ├──────────┤
//	                                 │ S3Sink   │  s3://{bucket}/{prefix}/{key}
//	                                 ├──────────┤
//	                                 │ Multi    │  every sink in order
//	                                 └──────────┘
//
// Frames are encoded as 16-bit TIFF (default, deflate compressed) or PNG.
package framestore
