package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"voltrack/internal/volume"
)

// TableFormatter formats volumes as human-readable tables.
type TableFormatter struct {
	NoHeaders bool
	Wide      bool
}

// FormatVolume formats a single volume as a table row.
func (f *TableFormatter) FormatVolume(v *volume.Volume) (string, error) {
	return f.FormatVolumeList([]*volume.Volume{v})
}

// FormatVolumeList formats volumes as a table.
func (f *TableFormatter) FormatVolumeList(vols []*volume.Volume) (string, error) {
	if len(vols) == 0 {
		return "No volumes found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		header := "NAME\tMOUNT\tTYPE\tFS\tDISK\tSIZE\tFREE\tTRACKED"
		if f.Wide {
			header = "FINGERPRINT\t" + header + "\tID"
		}
		_, _ = fmt.Fprintln(w, header)
	}

	for _, v := range vols {
		cols := []string{
			dash(v.Name),
			dash(v.MountPath),
			dash(string(v.VolumeType)),
			dash(string(v.FileSystem)),
			dash(string(v.DiskType)),
			bytesOrDash(v.TotalCapacity),
			bytesOrDash(v.AvailableSpace),
			yesNo(v.IsTracked),
		}
		if f.Wide {
			cols = append([]string{v.Fingerprint.ShortID()}, cols...)
			cols = append(cols, v.ID.String())
		}
		_, _ = fmt.Fprintln(w, strings.Join(cols, "\t"))
	}

	_ = w.Flush()
	return buf.String(), nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func bytesOrDash(n uint64) string {
	if n == 0 {
		return "-"
	}
	return humanize.IBytes(n)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
