package wire

import (
	"bytes"
	"fmt"
	"os"

	"github.com/chazu/deneb/bridge"
	"github.com/chazu/deneb/vm"
)

// ---------------------------------------------------------------------------
// Image file format
// ---------------------------------------------------------------------------

// imageMagic identifies a Deneb image file. The leading byte keeps
// images from parsing as text.
var imageMagic = []byte{0x97, 'D', 'N', 'B', '1'}

// imageVersion is bumped when the snapshot layout changes.
const imageVersion byte = 1

// SaveFile snapshots the value at idx into an image file. [-0, +0]
func SaveFile(ctx *bridge.Context, path string, idx int) error {
	data, err := Encode(ctx, idx)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(imageMagic)+1+len(data))
	buf = append(buf, imageMagic...)
	buf = append(buf, imageVersion)
	buf = append(buf, data...)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("wire: write image: %w", err)
	}
	return nil
}

// LoadFile reads an image file and pushes its value. The status tells
// the two failure families apart: StatusFileError when the file cannot
// be read at all, StatusSyntaxError when its bytes are not a valid
// image, StatusOK with the value pushed otherwise. [-0, +1 on success]
func LoadFile(ctx *bridge.Context, path string) (vm.Status, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return vm.StatusFileError, fmt.Errorf("wire: read image: %w", err)
	}
	if len(raw) < len(imageMagic)+1 || !bytes.HasPrefix(raw, imageMagic) {
		return vm.StatusSyntaxError, fmt.Errorf("wire: %s is not an image file", path)
	}
	if v := raw[len(imageMagic)]; v != imageVersion {
		return vm.StatusSyntaxError, fmt.Errorf("wire: unsupported image version %d", v)
	}
	if err := Decode(ctx, raw[len(imageMagic)+1:]); err != nil {
		return vm.StatusSyntaxError, err
	}
	return vm.StatusOK, nil
}
