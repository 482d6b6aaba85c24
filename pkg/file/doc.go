// Package file stores opaque blobs, such as queue snapshots, on the local
// filesystem or in Amazon S3 behind a single Storage interface.
//
// LocalStorage confines every key to its base directory and writes through a
// temporary file followed by a rename. S3Storage uses aws-sdk-go-v2 and maps
// service errors onto the package sentinels:
//
//	store, err := file.NewS3Storage(ctx, file.S3Config{
//	    Bucket: "jobqueue",
//	    Region: "eu-central-1",
//	    Prefix: "snapshots",
//	})
//	if err != nil {
//	    return err
//	}
//	data, err := store.Read(ctx, "emails.json")
//	if errors.Is(err, file.ErrFileNotFound) {
//	    // first run
//	}
package file
