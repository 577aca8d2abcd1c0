package models

import (
	"encoding/binary"
	"fmt"
)

// RenderedPage is an encoded page image.
type RenderedPage struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"data"`
}

// TileRect is a tile rectangle in post-scale pixel coordinates.
type TileRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RenderedTile is an encoded sub-region of a full-page render at the same scale.
type RenderedTile struct {
	RenderedPage
	OffsetX int `json:"offset_x"`
	OffsetY int `json:"offset_y"`
}

const packedHeaderLen = 8

// PackRendered prefixes data with width and height as big-endian uint32 values.
func PackRendered(width, height int, data []byte) []byte {
	out := make([]byte, packedHeaderLen+len(data))
	binary.BigEndian.PutUint32(out[0:4], uint32(width))
	binary.BigEndian.PutUint32(out[4:8], uint32(height))
	copy(out[packedHeaderLen:], data)
	return out
}

// UnpackRendered splits a blob produced by PackRendered.
func UnpackRendered(blob []byte) (width, height int, data []byte, err error) {
	if len(blob) < packedHeaderLen {
		return 0, 0, nil, fmt.Errorf("%w: packed render is %d bytes, need at least %d", ErrInvalidArgument, len(blob), packedHeaderLen)
	}
	width = int(binary.BigEndian.Uint32(blob[0:4]))
	height = int(binary.BigEndian.Uint32(blob[4:8]))
	return width, height, blob[packedHeaderLen:], nil
}
