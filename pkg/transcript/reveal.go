package transcript

// Visible return the part of seg.Text a typing effect shows at now (ms).
func Visible(seg Segment, now, charDelay int64) string {
	if !seg.Animate || charDelay <= 0 {
		return seg.Text
	}
	elapsed := now - seg.RevealTime
	if elapsed <= 0 {
		return ""
	}
	n := elapsed / charDelay
	var i int64
	for pos := range seg.Text {
		if i == n {
			return seg.Text[:pos]
		}
		i++
	}
	return seg.Text
}

// Visible using the delay of s
func (s *Segmenter) Visible(seg Segment, now int64) string {
	return Visible(seg, now, s.opts.CharDelay)
}

// Settled reports whether every typing effect of tr has finished at now.
func (s *Segmenter) Settled(tr *Transcript, now int64) bool {
	for _, seg := range tr.Segments {
		if seg.Animate && seg.RevealTime+int64(Len(seg.Text))*s.opts.CharDelay > now {
			return false
		}
	}
	return true
}
