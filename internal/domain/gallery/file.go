package gallery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"
	"github.com/vmihailenco/msgpack/v5"
)

const filePermission = 0o600

// document is the on-disk gallery layout shared by the JSON and msgpack codecs.
type document struct {
	Mode       Mode    `json:"mode" msgpack:"mode"`
	Dim        int     `json:"dim" msgpack:"dim"`
	Identities []Entry `json:"identities" msgpack:"identities"`
}

func isMsgpack(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		return true
	}
	return false
}

// Load reads a gallery file and applies mode. A gallery stored with all
// samples can be loaded as ModeMean; a stored mean gallery stays as it is.
// A missing file returns ErrNotFound.
func Load(path string, mode Mode) (*Gallery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read gallery %s: %w", path, err)
	}
	return Decode(data, isMsgpack(path), mode)
}

// Decode parses gallery bytes. JSON input may also be a plain object of
// identity -> embedding; identities are then taken in natural order.
func Decode(data []byte, binary bool, mode Mode) (*Gallery, error) {
	var doc document
	if binary {
		if err := msgpack.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	} else {
		if len(bytes.TrimSpace(data)) == 0 {
			return Empty(), nil
		}
		if err := decodeJSON(data, &doc); err != nil {
			return nil, err
		}
	}

	if doc.Mode == ModeMean {
		mode = ModeMean
	}
	g, err := FromEntries(mode, doc.Identities)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return g, nil
}

func decodeJSON(data []byte, doc *document) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if _, ok := probe["identities"]; ok {
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return nil
	}

	names := make([]string, 0, len(probe))
	for name := range probe {
		names = append(names, name)
	}
	natsort.Sort(names)
	for _, name := range names {
		var emb []float64
		if err := json.Unmarshal(probe[name], &emb); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
		}
		doc.Identities = append(doc.Identities, Entry{Identity: name, Embeddings: [][]float64{emb}})
	}
	doc.Mode = ModeMean
	return nil
}

// Encode serializes g with the JSON or msgpack codec.
func Encode(g *Gallery, binary bool) ([]byte, error) {
	doc := document{Mode: g.Mode(), Dim: g.Dim(), Identities: g.Entries()}
	if binary {
		return msgpack.Marshal(&doc)
	}
	return json.MarshalIndent(&doc, "", "  ")
}

// Save writes g to path atomically, choosing the codec by extension.
func Save(path string, g *Gallery) error {
	data, err := Encode(g, isMsgpack(path))
	if err != nil {
		return fmt.Errorf("encode gallery: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create gallery dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, filePermission); err != nil {
		return fmt.Errorf("write gallery: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace gallery: %w", err)
	}
	return nil
}
