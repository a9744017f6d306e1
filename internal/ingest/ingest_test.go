package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/claims-processor/internal/common"
)

var minimalPDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestCheckPDF(t *testing.T) {
	junkThenHeader := append([]byte(strings.Repeat(" ", 100)), minimalPDF...)
	lateHeader := append([]byte(strings.Repeat(" ", 2000)), minimalPDF...)

	tests := []struct {
		name    string
		file    string
		data    []byte
		wantErr bool
	}{
		{"pdf", "bill.pdf", minimalPDF, false},
		{"upper-case extension", "BILL.PDF", minimalPDF, false},
		{"header after junk", "scan.pdf", junkThenHeader, false},
		{"header too late", "scan.pdf", lateHeader, true},
		{"wrong extension", "bill.png", minimalPDF, true},
		{"no extension", "bill", minimalPDF, true},
		{"renamed text file", "notes.pdf", []byte("hello"), true},
		{"name only", "claim.pdf", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPDF(tt.file, tt.data)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
			assert.Equal(t, "Only PDF files are supported. Got: "+tt.file, err.Error())
		})
	}
}

func TestCollectClaims(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "claim-b", "bill.pdf"), minimalPDF)
	writeFile(t, filepath.Join(root, "claim-b", "discharge.pdf"), minimalPDF)
	writeFile(t, filepath.Join(root, "claim-b", "nested", "id.pdf"), minimalPDF)
	writeFile(t, filepath.Join(root, "claim-a", "bill.PDF"), minimalPDF)
	writeFile(t, filepath.Join(root, "claim-a", "notes.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, "loose.pdf"), minimalPDF)
	writeFile(t, filepath.Join(root, ".hidden", "bill.pdf"), minimalPDF)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	claims, stats, err := CollectClaims(root, true)
	require.NoError(t, err)

	byName := map[string]ClaimDir{}
	var names []string
	for _, c := range claims {
		names = append(names, c.Name)
		byName[c.Name] = c
	}
	assert.ElementsMatch(t, []string{"claim-a", "claim-b", filepath.Base(root)}, names)
	assert.IsIncreasing(t, names)
	assert.EqualValues(t, 3, stats.Claims)
	assert.EqualValues(t, 5, stats.Matched)
	assert.EqualValues(t, 6, stats.Scanned)
	assert.Equal(t, []string{filepath.Join(root, "loose.pdf")}, byName[filepath.Base(root)].Files)

	b := byName["claim-b"]
	assert.Equal(t, []string{
		filepath.Join(root, "claim-b", "bill.pdf"),
		filepath.Join(root, "claim-b", "discharge.pdf"),
		filepath.Join(root, "claim-b", "nested", "id.pdf"),
	}, b.Files)

	uploads, err := Load(b)
	require.NoError(t, err)
	require.Len(t, uploads, 3)
	assert.Equal(t, "bill.pdf", uploads[0].Name)
	assert.Equal(t, minimalPDF, uploads[0].Data)

	withHidden, _, err := CollectClaims(root, false)
	require.NoError(t, err)
	assert.Len(t, withHidden, 4)
}

func TestCollectClaims_EmptyRoot(t *testing.T) {
	_, _, err := CollectClaims("  ", false)
	assert.Error(t, err)
}

func TestWatch_EmitsClaimDirOnce(t *testing.T) {
	root := t.TempDir()
	claimDir := filepath.Join(root, "claim-1")
	require.NoError(t, os.MkdirAll(claimDir, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{Root: root, Debounce: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	writeFile(t, filepath.Join(claimDir, "bill.pdf"), minimalPDF)
	writeFile(t, filepath.Join(claimDir, "discharge.pdf"), minimalPDF)
	writeFile(t, filepath.Join(claimDir, "notes.txt"), []byte("ignored"))

	select {
	case dir := <-events:
		assert.Equal(t, claimDir, dir)
	case <-time.After(5 * time.Second):
		t.Fatal("no claim directory reported")
	}

	select {
	case dir := <-events:
		t.Fatalf("unexpected second event for %s", dir)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	for range events {
	}
}

func TestWatch_RequiresRoot(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
