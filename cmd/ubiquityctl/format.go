package main

import (
	"fmt"
	"strings"
	"time"
)

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) int64 {
	f, _ := m[key].(float64)
	return int64(f)
}

func clock(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func trackName(t map[string]any) string {
	if artist := str(t, "artist"); artist != "" {
		return artist + " - " + str(t, "title")
	}
	return str(t, "title")
}

func printStatus(s map[string]any) {
	fmt.Printf("State:    %s (%s backend)\n", str(s, "status"), str(s, "backend"))
	if cur, ok := s["current"].(map[string]any); ok {
		fmt.Printf("Track:    [%d] %s\n", num(s, "index"), trackName(cur))
		fmt.Printf("Position: %s / %s\n", clock(num(s, "position_ms")), clock(num(s, "total_ms")))
	} else {
		fmt.Println("Track:    -")
	}
	if next, ok := s["next"].(map[string]any); ok {
		fmt.Printf("Next:     %s\n", trackName(next))
	}
	gapless := "off"
	if g, _ := s["gapless"].(bool); g {
		gapless = "on"
	}
	fmt.Printf("Volume:   %d  Speed: %.1fx  Loop: %s  Gapless: %s  Tracks: %d (%s)\n",
		num(s, "volume"), float64(num(s, "speed"))/10, str(s, "loop_mode"), gapless,
		num(s, "track_count"), clock(num(s, "playlist_ms")))
}

func printList(res map[string]any) {
	tracks, _ := res["tracks"].([]any)
	current := num(res, "index")
	for i, v := range tracks {
		t, _ := v.(map[string]any)
		marker := " "
		if int64(i) == current {
			marker = ">"
		}
		fmt.Printf("%s %4d  %-8s  %s\n", marker, i, str(t, "duration"), trackName(t))
	}
	fmt.Printf("\n%d tracks, %s total\n", num(res, "track_count"), clock(num(res, "total_ms")))
}

func printAdded(res map[string]any) {
	added, _ := res["added"].([]any)
	for _, v := range added {
		t, _ := v.(map[string]any)
		fmt.Printf("added  %s\n", trackName(t))
	}
}

func printRescan(res map[string]any) {
	rejected, _ := res["rejected"].([]any)
	for _, v := range rejected {
		r, _ := v.(map[string]any)
		fmt.Printf("skipped  %-24s  %s\n", str(r, "code"), str(r, "path"))
	}
	fmt.Printf("%d tracks, %d skipped, %d unreadable\n", num(res, "track_count"), len(rejected), num(res, "failed"))
}

// formatNotification renders one subscription message as a single line.
func formatNotification(n map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-8s", str(n, "type"), str(n, "status"))
	if t, ok := n["track"].(map[string]any); ok {
		fmt.Fprintf(&b, " %s", trackName(t))
	} else if cur, ok := n["current"].(map[string]any); ok {
		fmt.Fprintf(&b, " %s", trackName(cur))
	}
	if str(n, "type") == "progress" {
		fmt.Fprintf(&b, " %s / %s", clock(num(n, "position_ms")), clock(num(n, "total_ms")))
	}
	if e := str(n, "error"); e != "" {
		fmt.Fprintf(&b, " error: %s", e)
	}
	return b.String()
}
