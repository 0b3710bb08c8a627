package georef

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestReadWorldFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "map.tfw")
	content := "0.5\n0\n0\n-0.5\n500000.25\n4099999.75\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	aff, err := ReadWorldFile(path)
	if err != nil {
		t.Fatalf("ReadWorldFile: %v", err)
	}
	want := [6]float64{0.5, 0, 0, -0.5, 500000.25, 4099999.75}
	if aff != want {
		t.Errorf("affine = %v, want %v", aff, want)
	}
}

func TestReadWorldFileCRLFAndPadding(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "map.tfw")
	content := " 1\r\n0\r\n0\r\n1\r\n\r\n10 \r\n20\r\nextra ignored\r\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	aff, err := ReadWorldFile(path)
	if err != nil {
		t.Fatalf("ReadWorldFile: %v", err)
	}
	want := [6]float64{1, 0, 0, 1, 10, 20}
	if aff != want {
		t.Errorf("affine = %v, want %v", aff, want)
	}
}

func TestReadWorldFileErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadWorldFile(filepath.Join(t.TempDir(), "absent.tfw"))
		if !IsKind(err, IOFailure) {
			t.Fatalf("err = %v, want kind %q", err, IOFailure)
		}
	})

	t.Run("malformed number", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.tfw")
		if err := os.WriteFile(path, []byte("1\n0\nnot-a-number\n1\n0\n0\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := ReadWorldFile(path)
		if !IsKind(err, ParseFailure) {
			t.Fatalf("err = %v, want kind %q", err, ParseFailure)
		}
	})

	t.Run("too few values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short.tfw")
		if err := os.WriteFile(path, []byte("1\n0\n0\n1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := ReadWorldFile(path)
		if !IsKind(err, ParseFailure) {
			t.Fatalf("err = %v, want kind %q", err, ParseFailure)
		}
	})
}

func TestWriteWorldFileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.tfw")
	want := [6]float64{1.25, -0.001, 0.001, -1.25, 123456.789, -98765.4321}
	if err := WriteWorldFile(path, want); err != nil {
		t.Fatalf("WriteWorldFile: %v", err)
	}
	got, err := ReadWorldFile(path)
	if err != nil {
		t.Fatalf("ReadWorldFile: %v", err)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("affine[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWritePrj(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.prj")
	const wkt = `PROJCS["WGS 84 / UTM zone 33N"]`
	if err := WritePrj(path, wkt); err != nil {
		t.Fatalf("WritePrj: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != wkt {
		t.Errorf("sidecar = %q, want %q", data, wkt)
	}
}

func TestWorldFileExts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ext  string
		want []string
	}{
		{".tif", []string{".tfw"}},
		{".TIFF", []string{".tfw"}},
		{".jpg", []string{".jgw", ".j2w"}},
		{".jpeg", []string{".jgw", ".j2w"}},
		{".png", []string{".pgw"}},
		{".gif", []string{".gfw"}},
		{".bmp", []string{".bpw"}},
		{".webp", []string{".wld"}},
		{"", []string{".wld"}},
	}
	for _, tc := range cases {
		got := worldFileExts(tc.ext)
		if len(got) != len(tc.want) {
			t.Errorf("%q: exts = %v, want %v", tc.ext, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%q: exts = %v, want %v", tc.ext, got, tc.want)
				break
			}
		}
	}
}
