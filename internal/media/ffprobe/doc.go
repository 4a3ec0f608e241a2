// Package ffprobe validates transcoded episodes before upload: the file must
// hold an audio stream with a usable duration.
package ffprobe
