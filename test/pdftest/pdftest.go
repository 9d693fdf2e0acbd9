// Package pdftest builds tiny valid PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// MinimalPDF returns a one-page PDF whose page shows text in
// Helvetica. The cross-reference table is computed from the actual
// byte offsets so any conforming reader can parse the file.
func MinimalPDF(text string) []byte {
	return build(text, false)
}

// EncryptedPDF returns a PDF declaring standard security-handler
// encryption (RC4, 40-bit) whose owner/user entries match no
// password. Conforming readers reject it at open time, so the page
// content is never reachable.
func EncryptedPDF() []byte {
	return build("locked", true)
}

func build(text string, encrypted bool) []byte {
	var buf bytes.Buffer
	var offsets []int

	buf.WriteString("%PDF-1.4\n")
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
		"/Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>")
	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escapeString(text))
	writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	trailerExtra := ""
	if encrypted {
		// 32-byte /O and /U values that the empty-password check
		// cannot reproduce.
		writeObj("<< /Filter /Standard /V 1 /R 2 /Length 40 /P -44 " +
			"/O (01234567890123456789012345678901) " +
			"/U (01234567890123456789012345678901) >>")
		trailerExtra = fmt.Sprintf(" /Encrypt %d 0 R /ID [(0123456789abcdef) (0123456789abcdef)]", len(offsets))
	}

	size := len(offsets) + 1
	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n",
		size, trailerExtra, xrefPos)
	return buf.Bytes()
}

// escapeString escapes the characters with special meaning inside a
// PDF literal string.
func escapeString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
