// Uploadserver accepts file uploads over HTTP and keeps them, split into
// chunks, in a bolt database, a directory, or an S3 bucket.
//
// GET / serves an upload form listing the stored files. POST /upload takes a
// multipart form whose "file" field is stored under a generated name: 32
// random hex digits followed by the original extension. GET /files and GET
// /files/{filename} return metadata as JSON, and GET /image/{filename}
// returns the content of JPEG and PNG files. DELETE /files/{filename}, or a
// POST with the query parameter _method=DELETE, removes a file. Unknown
// files yield 404 and a JSON body such as {"err":"No file exists"}.
//
// Configuration is read from an rjson file, by default
// $HOME/lib/uploads/uploadserver.config:
//
//	{
//		listen: ":5000"
//		debug: false
//		chunk_size: 261120
//		compression: "zstd"
//		backend: {
//			type: "bolt"
//			path: "$HOME/lib/uploads/uploads.db"
//		}
//	}
//
// Metrics are exposed at /metrics.
package main // import "github.com/nicolagi/uploads/cmd/uploadserver"
