package executor

import "unicode/utf8"

// maxLeadScan bounds how far utf8Range looks for the first character start.
const maxLeadScan = 6

// utf8Range returns the widest [start, end) of buf that neither begins with a
// continuation byte nor ends inside a multi-byte character.
func utf8Range(buf []byte) (int, int) {
	start := 0
	for i := 0; i < len(buf) && i < maxLeadScan; i++ {
		if utf8.RuneStart(buf[i]) {
			start = i
			break
		}
	}

	end := len(buf)
	for i := len(buf) - 1; i >= start && i >= len(buf)-utf8.UTFMax; i-- {
		if utf8.RuneStart(buf[i]) {
			if !utf8.FullRune(buf[i:]) {
				end = i
			}
			break
		}
	}
	return start, end
}
