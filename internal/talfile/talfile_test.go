package talfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseReadsLocationsAndKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ripe.tal")
	content := "rsync://rpki.ripe.net/ta/ripe-ncc-ta.cer\nhttps://rpki.ripe.net/ta/ripe-ncc-ta.cer\n\nMIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8A\nMIIBCgKCAQEA\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tal, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, "ripe", tal.CaName)
	require.Equal(t, []string{
		"rsync://rpki.ripe.net/ta/ripe-ncc-ta.cer",
		"https://rpki.ripe.net/ta/ripe-ncc-ta.cer",
	}, tal.CertificateLocations)
	require.Equal(t, "MIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8AMIIBCgKCAQEA", tal.PublicKeyInfo)
}

func TestParseReadsPrefetchDirectives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ripe.tal")
	content := "rsync://rpki.ripe.net/ta/ripe-ncc-ta.cer\n" +
		"#prefetch rsync://rpki.ripe.net/repository/\n" +
		"# just a comment\n" +
		"#prefetch rsync://rpki.ripe.net/repository/other/\n" +
		"\nMIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8A\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tal, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, []string{"rsync://rpki.ripe.net/ta/ripe-ncc-ta.cer"}, tal.CertificateLocations)
	require.Equal(t, []string{
		"rsync://rpki.ripe.net/repository/",
		"rsync://rpki.ripe.net/repository/other/",
	}, tal.PrefetchUris)
}

func TestParseMissingKeyErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.tal")
	require.NoError(t, os.WriteFile(path, []byte("rsync://example/ta.cer\n"), 0o644))

	_, err := Parse(path)
	require.Error(t, err)
}

func TestParseAllStopsAtFirstError(t *testing.T) {
	_, err := ParseAll([]string{"/nonexistent/path.tal"})
	require.Error(t, err)
}
