package storage

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"
)

// ComputeContentID computes the content identifier for the given data
// using SHA2-256.
//
// Uses CIDv1 with the raw codec, which is standard for blob storage. The
// identifier is deterministic over the bytes, so it can be computed before
// the write and identical payloads always map to the same identifier.
func ComputeContentID(data []byte) (string, mh.Multihash, error) {
	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", nil, err
	}

	c := cid.NewCidV1(uint64(multicodec.Raw), hash)

	return c.String(), hash, nil
}

// DecodeContentID parses a content identifier string into a CID.
func DecodeContentID(contentID string) (cid.Cid, error) {
	return cid.Decode(contentID)
}
