package probe

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	NbStreams  int
	FormatName string
	Duration   float64 // seconds
	Size       int64
	BitRate    int64
	Tags       map[string]string
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Index         int
	Codec         string
	PixFmt        string
	Width         int
	Height        int
	SampleAspect  string // "num:den" as reported; empty or "0:1" when unknown
	DisplayAspect string
	FieldOrder    string
	AvgFrameRate  string
	StereoMode    string // matroska stereo_mode tag
	SideData      []string
	IsAttachedPic bool
}

// AudioStream holds the parsed properties of a single audio stream.
type AudioStream struct {
	Index         int
	Codec         string
	Channels      int
	ChannelLayout string
	SampleRate    int
	BitRate       int64
	Language      string
	IsDefault     bool
}

// SubtitleStream holds the parsed properties of a single subtitle stream.
// Ordinal is the stream's position among subtitle streams, which is what the
// subtitles/overlay filters address.
type SubtitleStream struct {
	Index     int
	Ordinal   int
	Codec     string
	Language  string
	IsBitmap  bool
	IsForced  bool
	IsDefault bool
}

// ProbeResult is the fully parsed output of a single ffprobe JSON call.
// PrimaryVideo is the first non-attached-pic video stream (nil if none).
type ProbeResult struct {
	Format          FormatInfo
	PrimaryVideo    *VideoStream
	AudioStreams    []AudioStream
	SubtitleStreams []SubtitleStream
}

// PrimaryAudio returns the default audio stream, else the first one, else nil.
func (p *ProbeResult) PrimaryAudio() *AudioStream {
	for i := range p.AudioStreams {
		if p.AudioStreams[i].IsDefault {
			return &p.AudioStreams[i]
		}
	}
	if len(p.AudioStreams) > 0 {
		return &p.AudioStreams[0]
	}
	return nil
}

// ForcedSubtitle returns the first subtitle stream flagged forced, or nil.
func (p *ProbeResult) ForcedSubtitle() *SubtitleStream {
	for i := range p.SubtitleStreams {
		if p.SubtitleStreams[i].IsForced {
			return &p.SubtitleStreams[i]
		}
	}
	return nil
}

// Resolution returns "WxH" for the primary video stream, or "unknown".
func (p *ProbeResult) Resolution() string {
	if p.PrimaryVideo == nil || p.PrimaryVideo.Width <= 0 || p.PrimaryVideo.Height <= 0 {
		return "unknown"
	}
	return itoa(p.PrimaryVideo.Width) + "x" + itoa(p.PrimaryVideo.Height)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
