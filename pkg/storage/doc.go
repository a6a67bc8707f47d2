// Package storage manages files in the output directory.
//
// AssetNamer allocates img_<n>.<ext> names by scanning the directory once
// at startup, so numbering continues across runs without a stored counter.
// Manager prepares fetched payloads (re-encoding them as JPEG when
// normalization is on), writes them atomically and hands each one to an
// optional Submitter for remote mirroring. Mirror implementations upload
// to Google Cloud Storage or S3.
//
// Like the content store, everything here assumes one writer per
// directory.
package storage
