package fits

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	cardSize  = 80
	blockSize = 2880
	keySize   = 8

	// maxStringValue is the room between the quotes of a string card.
	maxStringValue = cardSize - 10 - 2
)

var endCard = padCard("END")

// UpdateKey sets a string keyword in the primary header of the file at
// path. An existing card is replaced in place; a new card is inserted
// before END, growing the header by one block when it is full.
func UpdateKey(path, key, value, comment string) error {
	card, err := stringCard(key, value, comment)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("fits: open %s: %w", path, err)
	}
	defer f.Close()

	header, end, err := readHeader(f)
	if err != nil {
		return fmt.Errorf("fits: %s: %w", path, err)
	}

	if i := findCard(header[:end*cardSize], key); i >= 0 {
		return writeAt(f, card, int64(i*cardSize))
	}

	// Room for one more card before the end of the last header block.
	if (end+1)*cardSize < len(header) {
		return writeAt(f, append(card, endCard...), int64(end*cardSize))
	}

	f.Close()
	return growHeader(path, header, end, card)
}

// readHeader reads the primary header up to the end of the block holding
// END and returns it with the card index of END.
func readHeader(r io.Reader) ([]byte, int, error) {
	var header []byte
	block := make([]byte, blockSize)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			if len(header) == 0 {
				return nil, 0, ErrNotFITS
			}
			return nil, 0, ErrNoEnd
		}
		if len(header) == 0 && !bytes.HasPrefix(block, []byte("SIMPLE  =")) {
			return nil, 0, ErrNotFITS
		}
		start := len(header)
		header = append(header, block...)
		for i := start; i < len(header); i += cardSize {
			if isKey(header[i:i+cardSize], "END") {
				return header, i / cardSize, nil
			}
		}
	}
}

// findCard returns the index of the first card with the keyword, or -1.
func findCard(header []byte, key string) int {
	for i := 0; i+cardSize <= len(header); i += cardSize {
		if isKey(header[i:i+cardSize], key) {
			return i / cardSize
		}
	}
	return -1
}

func isKey(card []byte, key string) bool {
	return strings.TrimRight(string(card[:keySize]), " ") == key
}

func writeAt(f *os.File, data []byte, off int64) error {
	if _, err := f.WriteAt(data, off); err != nil {
		return fmt.Errorf("fits: write header: %w", err)
	}
	return nil
}

// growHeader rewrites the file with one more header block, going through a
// temporary file in the same directory.
func growHeader(path string, header []byte, end int, card []byte) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("fits: open %s: %w", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("fits: stat %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".fits-*")
	if err != nil {
		return fmt.Errorf("fits: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	grown := make([]byte, 0, len(header)+blockSize)
	grown = append(grown, header[:end*cardSize]...)
	grown = append(grown, card...)
	grown = append(grown, endCard...)
	for len(grown)%blockSize != 0 {
		grown = append(grown, ' ')
	}

	if _, err := tmp.Write(grown); err != nil {
		tmp.Close()
		return fmt.Errorf("fits: write header: %w", err)
	}
	if _, err := src.Seek(int64(len(header)), io.SeekStart); err != nil {
		tmp.Close()
		return fmt.Errorf("fits: seek data: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("fits: copy data: %w", err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("fits: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fits: close: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// stringCard formats a fixed-format character string card.
func stringCard(key, value, comment string) ([]byte, error) {
	key = strings.ToUpper(key)
	if key == "" || len(key) > keySize || strings.ContainsAny(key, " =") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	quoted := quoteString(value)
	if len(quoted) < 8 {
		quoted += strings.Repeat(" ", 8-len(quoted))
	}
	text := fmt.Sprintf("%-8s= %-20s", key, "'"+quoted+"'")
	if comment != "" && len(text)+3+len(comment) <= cardSize {
		text += " / " + comment
	}
	return padCard(text), nil
}

// quoteString doubles embedded quotes and cuts the result to the card's
// string capacity without splitting a doubled quote.
func quoteString(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		n := 1
		if c == '\'' {
			n = 2
		}
		if b.Len()+n > maxStringValue {
			break
		}
		b.WriteByte(c)
		if n == 2 {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func padCard(text string) []byte {
	card := []byte(text)
	for len(card) < cardSize {
		card = append(card, ' ')
	}
	return card
}
