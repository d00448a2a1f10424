package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/d65v/vecbase"
	"github.com/d65v/vecbase/similarity"
)

var (
	importFile   string
	importPrefix string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load float32 vectors from a NumPy .npy file",
	Long: `Import a 2-D little-endian float32 array of shape (N, D) from a .npy file.
Row i becomes record <prefix><i>; D must match the configured dimension.
Rows containing NaN or Inf components are skipped.

Examples:
  vecbase import --dim 128 -f embeddings.npy
  vecbase import --dim 768 -f openai.npy --prefix doc_ --dry-run`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "path to the .npy file")
	importCmd.Flags().StringVarP(&importPrefix, "prefix", "p", "vec_", "identifier prefix for imported rows")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "parse and validate only, insert nothing")
	_ = importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(importFile)
	if err != nil {
		return err
	}
	h, err := parseNpyHeader(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", importFile, err)
	}
	if h.cols != cfg.Dimension {
		return fmt.Errorf("%s holds dimension-%d vectors, configured dimension is %d",
			importFile, h.cols, cfg.Dimension)
	}

	want := h.rows * h.cols * 4
	data := raw[h.dataOffset:]
	if len(data) < want {
		return fmt.Errorf("%s: data section too small: want %d bytes, have %d",
			importFile, want, len(data))
	}

	if importDryRun {
		fmt.Printf("%s: shape (%d, %d), float32, ok\n", importFile, h.rows, h.cols)
		return nil
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	bar := progressbar.Default(int64(h.rows), "importing")
	inserted, skipped, err := importRows(cmd.Context(), db, h, data[:want], importPrefix, bar)
	if err != nil {
		return err
	}

	fmt.Printf("\nimported %d vectors", inserted)
	if skipped > 0 {
		fmt.Printf(" (%d rows skipped: non-finite components)", skipped)
	}
	fmt.Println()
	return nil
}

// npyMagic opens every .npy file, followed by a one-byte major and minor
// version and the Python-dict header describing dtype, order and shape.
var npyMagic = []byte("\x93NUMPY")

type npyHeader struct {
	rows       int
	cols       int
	dataOffset int
}

// parseNpyHeader parses a .npy v1.0 or v2.0 header for a 2-D row-major
// little-endian float32 array.
func parseNpyHeader(data []byte) (npyHeader, error) {
	if len(data) < 10 || !bytes.HasPrefix(data, npyMagic) {
		return npyHeader{}, fmt.Errorf("not a .npy file (bad magic)")
	}

	major, minor := data[6], data[7]
	var hdrLen, hdrStart int
	switch major {
	case 1:
		hdrLen = int(binary.LittleEndian.Uint16(data[8:10]))
		hdrStart = 10
	case 2:
		if len(data) < 12 {
			return npyHeader{}, fmt.Errorf("truncated header")
		}
		hdrLen = int(binary.LittleEndian.Uint32(data[8:12]))
		hdrStart = 12
	default:
		return npyHeader{}, fmt.Errorf("unsupported .npy version %d.%d", major, minor)
	}

	end := hdrStart + hdrLen
	if len(data) < end {
		return npyHeader{}, fmt.Errorf("file too short for declared header")
	}
	hdr := string(data[hdrStart:end])

	if !strings.Contains(hdr, "'<f4'") && !strings.Contains(hdr, `"<f4"`) {
		return npyHeader{}, fmt.Errorf("unsupported dtype (need little-endian float32)")
	}
	if strings.Contains(hdr, "'fortran_order': True") || strings.Contains(hdr, `"fortran_order": True`) {
		return npyHeader{}, fmt.Errorf("fortran-order arrays are not supported")
	}

	rows, cols, err := parseNpyShape(hdr)
	if err != nil {
		return npyHeader{}, err
	}
	return npyHeader{rows: rows, cols: cols, dataOffset: end}, nil
}

func parseNpyShape(hdr string) (rows, cols int, err error) {
	i := strings.Index(hdr, "'shape':")
	if i < 0 {
		i = strings.Index(hdr, `"shape":`)
	}
	if i < 0 {
		return 0, 0, fmt.Errorf("header has no shape key")
	}

	rest := hdr[i:]
	open := strings.IndexByte(rest, '(')
	closing := strings.IndexByte(rest, ')')
	if open < 0 || closing < open {
		return 0, 0, fmt.Errorf("malformed shape tuple")
	}

	var dims []int
	for _, f := range strings.Split(rest[open+1:closing], ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, perr := strconv.Atoi(f)
		if perr != nil {
			return 0, 0, fmt.Errorf("bad shape field %q", f)
		}
		dims = append(dims, n)
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("array must be 2-D (N, D), got %d dimension(s)", len(dims))
	}
	return dims[0], dims[1], nil
}

// importRows inserts the rows of a parsed .npy data section. Rows with
// non-finite components are counted and skipped; other insert failures
// abort the import.
func importRows(ctx context.Context, db *vecbase.DB, h npyHeader, data []byte, prefix string, bar *progressbar.ProgressBar) (inserted, skipped int, err error) {
	rowBytes := h.cols * 4
	for row := 0; row < h.rows; row++ {
		b := data[row*rowBytes : (row+1)*rowBytes]
		vec := make([]float32, h.cols)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}

		if _, ok := similarity.Finite(vec); !ok {
			skipped++
			continue
		}
		if err := db.Insert(ctx, fmt.Sprintf("%s%d", prefix, row), vec, ""); err != nil {
			return inserted, skipped, fmt.Errorf("row %d: %w", row, err)
		}
		inserted++
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return inserted, skipped, nil
}
