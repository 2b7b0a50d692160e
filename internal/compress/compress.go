// Package compress provides the codecs used for registration snapshot
// blobs. Registered metadata payloads can be large; they are stored encoded.
package compress

type Compress interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}
