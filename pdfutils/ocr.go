package pdfutils

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

func CheckForTesseract(path string) bool {
	if path == "tesseract" {
		if _, err := exec.LookPath("tesseract"); err != nil {
			return false
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}

	return true
}

// OCRImage pipes img through the tesseract binary at tessPath and returns the
// recognized text with whitespace condensed.
func OCRImage(ctx context.Context, img image.Image, tessPath, lang, dataDir string) (string, error) {
	tessArgs := []string{"stdin", "stdout", "--dpi", "300", "-l", lang}

	if dataDir != "" {
		tessArgs = append(tessArgs, "--tessdata-dir", dataDir)
	}

	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return "", errors.Wrap(err, "encode ocr input")
	}

	cmd := exec.CommandContext(ctx, tessPath, tessArgs...)
	cmd.Stdin = &in

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "tesseract: %s", strings.TrimSpace(stderr.String()))
	}

	return CondenseSpaces(out.String()), nil
}

func ValidateLang(tessPath, code string) bool {
	split := strings.Split(code, "+")

	cmd := exec.Command(tessPath, "--list-langs")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return false
	}

	outLines := strings.Split(string(out), "\n")

	for _, lang := range split {
		found := false
		for _, line := range outLines {
			if strings.Trim(line, "\n ") == lang {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}
