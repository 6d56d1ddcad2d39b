package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// AttachmentKind is a recognized attachment format.
type AttachmentKind string

// Recognized attachment kinds.
const (
	KindPDF  AttachmentKind = "pdf"
	KindDOCX AttachmentKind = "docx"
)

var magicNumbers = map[AttachmentKind][]byte{
	KindPDF:  []byte("%PDF-"),
	KindDOCX: []byte("PK\x03\x04"),
}

// CVKinds are the formats accepted for CV attachments.
var CVKinds = []AttachmentKind{KindPDF, KindDOCX}

// CheckAttachment checks that path exists and is not a directory.
func CheckAttachment(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrAttachmentNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("stat attachment %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrAttachmentNotFound, path)
	}
	return nil
}

// ValidateAttachment checks that path exists, is a regular file and starts
// with the magic bytes of one of the allowed kinds. It returns the detected
// kind.
func ValidateAttachment(path string, allowed ...AttachmentKind) (AttachmentKind, error) {
	if err := CheckAttachment(path); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open attachment %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read attachment %s: %w", path, err)
	}
	head = head[:n]

	for _, kind := range allowed {
		if bytes.HasPrefix(head, magicNumbers[kind]) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %s does not look like %v", ErrInvalidAttachment, path, allowed)
}
