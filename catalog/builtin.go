package catalog

const (
	mb = int64(1) << 20

	defaultMax = 10 * mb
	gifMax     = 5 * mb
	jpegMax    = 200 * mb
)

// Builtin returns the default signature catalog. Types with a reliable
// trailer use FooterTerminated; container formats whose trailer is not
// recoverable from content alone fall back to MaxSizeCapped. RIFF and ISO
// media headers wildcard their embedded length fields.
func Builtin() (*Catalog, error) {
	return New(BuiltinSignatures())
}

// BuiltinSignatures returns the default definitions in declaration order.
// Callers that want to extend the set can append to the result and build
// their own catalog.
func BuiltinSignatures() []Signature {
	inc := func(s string) *Pattern { p := MustPattern(s); return &p }
	return []Signature{
		// Archives.
		{Type: "zip", Ext: "zip", Header: MustPattern("504b0304"), Footer: inc("504b0506"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},
		{Type: "rar", Ext: "rar", Header: MustPattern("52617221"), Footer: inc("00000000"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},
		{Type: "7z", Ext: "7z", Header: MustPattern("377abcaf271c"), Footer: inc("00000000"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},
		{Type: "tar", Ext: "tar", Header: MustPattern("7573746172"), Footer: inc("00000000"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},
		{Type: "iso", Ext: "iso", Header: MustPattern("4344303031"), Footer: inc("00000000"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},

		// Documents. An OLE compound document has no trailer; the long form
		// carves until the next OLE header (exclusive footer), the short
		// form caps at MaxSize.
		{Type: "doc-ole", Ext: "doc", Header: MustPattern("d0cf11e0a1b11ae10000"), Footer: inc("d0cf11e0a1b11ae10000"), FooterInclusive: false, Policy: FooterTerminated, MaxSize: defaultMax},
		{Type: "doc", Ext: "doc", Header: MustPattern("d0cf11e0a1b1"), Policy: MaxSizeCapped, MaxSize: defaultMax},
		{Type: "html", Ext: "html", Header: MustPattern("3c68746d6c"), Footer: inc("3c2f68746d6c3e"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},
		{Type: "html-doctype", Ext: "html", Header: MustPattern("3c21444f43545950452068746d6c"), Footer: inc("3c2f68746d6c3e"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},
		{Type: "pdf", Ext: "pdf", Header: MustPattern("255044462d"), Footer: inc("2525454f46"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},
		{Type: "rtf", Ext: "rtf", Header: MustPattern("7b5c72746631"), Footer: inc("7d"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},

		// Images.
		{Type: "bmp", Ext: "bmp", Header: MustPattern("424d"), Policy: MaxSizeCapped, MaxSize: defaultMax},
		{Type: "gif87a", Ext: "gif", Header: MustPattern("474946383761"), Footer: inc("003b"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: gifMax},
		{Type: "gif89a", Ext: "gif", Header: MustPattern("474946383961"), Footer: inc("00003b"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: gifMax},
		{Type: "jpeg-jfif", Ext: "jpg", Header: MustPattern("ffd8ffe00010"), Footer: inc("ffd9"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: jpegMax},
		{Type: "jpeg-exif", Ext: "jpg", Header: MustPattern("ffd8ffe1"), Footer: inc("ffd9"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: jpegMax},
		{Type: "png", Ext: "png", Header: MustPattern("89504e470d0a1a0a"), Footer: inc("49454e44ae426082"), FooterInclusive: true, Policy: FooterTerminated, MaxSize: defaultMax},
		{Type: "tiff-le", Ext: "tif", Header: MustPattern("49492a00"), Policy: MaxSizeCapped, MaxSize: defaultMax},
		{Type: "tiff-be", Ext: "tif", Header: MustPattern("4d4d002a"), Policy: MaxSizeCapped, MaxSize: defaultMax},

		// Audio/video. The four bytes after RIFF are the chunk length.
		{Type: "avi", Ext: "avi", Header: MustPattern("52494646????????41564920"), Policy: MaxSizeCapped, MaxSize: defaultMax},
		{Type: "wav", Ext: "wav", Header: MustPattern("52494646????????57415645"), Policy: MaxSizeCapped, MaxSize: defaultMax},
		// ftyp boxes: the brand-specific mp4 pattern is longer than the
		// generic one, so it wins the same-offset tie-break when present.
		{Type: "mp4", Ext: "mp4", Header: MustPattern("000000??667479706d7034"), Policy: MaxSizeCapped, MaxSize: defaultMax},
		{Type: "mov", Ext: "mov", Header: MustPattern("000000??66747970"), Policy: MaxSizeCapped, MaxSize: defaultMax},
		{Type: "mp3-id3", Ext: "mp3", Header: MustPattern("494433"), Policy: MaxSizeCapped, MaxSize: defaultMax},
	}
}
