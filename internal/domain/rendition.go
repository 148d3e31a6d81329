package domain

import (
	"fmt"
	"strings"
)

// Rendition is one fixed-resolution variant of the source. Bitrates are in
// kbps; the master playlist declares BANDWIDTH in bits per second.
type Rendition struct {
	Name         string
	Width        int
	Height       int
	VideoBitrate int
	AudioBitrate int
}

// Ladder is the fixed ordered set of renditions considered for any source,
// smallest first.
var Ladder = []Rendition{
	{Name: "360p", Width: 640, Height: 360, VideoBitrate: 800, AudioBitrate: 96},
	{Name: "720p", Width: 1280, Height: 720, VideoBitrate: 2500, AudioBitrate: 128},
	{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: 5000, AudioBitrate: 192},
	{Name: "4k", Width: 3840, Height: 2160, VideoBitrate: 14000, AudioBitrate: 256},
}

// SelectLadder filters the ladder to renditions that fit within the source
// height. A source smaller than the lowest rung still gets that rung, so
// every input produces at least one playable stream.
func SelectLadder(sourceHeight int) []Rendition {
	var selected []Rendition
	for _, r := range Ladder {
		if r.Height <= sourceHeight {
			selected = append(selected, r)
		}
	}
	if len(selected) == 0 {
		selected = []Rendition{Ladder[0]}
	}
	return selected
}

// PlaylistName is the per-rendition playlist path relative to the HLS prefix.
func (r Rendition) PlaylistName() string {
	return r.Name + "/" + r.Name + ".m3u8"
}

// Resolution returns the WIDTHxHEIGHT string declared in the master playlist.
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// MasterPlaylist renders the master playlist listing each rendition as a
// variant stream referencing its relative playlist path.
func MasterPlaylist(renditions []Rendition) string {
	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n")
	for _, r := range renditions {
		fmt.Fprintf(&sb, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", r.VideoBitrate*1000, r.Resolution())
		sb.WriteString(r.PlaylistName() + "\n")
	}
	return sb.String()
}
