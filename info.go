package pak

// Info is a summary of an archive's layout.
type Info struct {
	FileSize      int64
	Version       Version
	IndexOffset   int64
	IndexSize     int64
	FooterOffset  int64
	IndexChecksum [20]byte
	MountPoint    string
	FileCount     int

	// UsedBytes counts bytes covered by records, index, and footer;
	// FreeRanges are the gaps in between.
	UsedBytes  int64
	FreeBytes  int64
	FreeRanges []FragRange
}

// Info computes the layout summary, including the fragmentation
// report over all allocated spans.
func (a *Archive) Info() (*Info, error) {
	frag, err := a.Fragments()
	if err != nil {
		return nil, err
	}
	free := frag.Invert()
	return &Info{
		FileSize:      a.Size(),
		Version:       a.parsed.Version,
		IndexOffset:   a.parsed.IndexOffset,
		IndexSize:     a.parsed.IndexSize,
		FooterOffset:  a.parsed.FooterOffset,
		IndexChecksum: a.parsed.Checksum,
		MountPoint:    a.parsed.MountPoint,
		FileCount:     len(a.parsed.Records),
		UsedBytes:     a.Size() - frag.Free(),
		FreeBytes:     frag.Free(),
		FreeRanges:    free.Ranges(),
	}, nil
}
