package util

import (
	"strconv"
	"unicode"
)

func RemoveDuplicateStrings(strings []string, ignoreList []string) []string {
	presentStrings := make(map[string]bool)
	var list []string

	for _, ignoreString := range ignoreList {
		presentStrings[ignoreString] = true
	}

	for _, item := range strings {
		if _, value := presentStrings[item]; !value && item != "" {
			presentStrings[item] = true
			list = append(list, item)
		}
	}
	return list
}

// NaturalLess compares strings so that embedded numbers order numerically ("29" < "501" < "504A")
func NaturalLess(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0

	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}

			an, aerr := strconv.ParseUint(string(ar[si:i]), 10, 64)
			bn, berr := strconv.ParseUint(string(br[sj:j]), 10, 64)
			if aerr == nil && berr == nil && an != bn {
				return an < bn
			}
			if aerr != nil || berr != nil {
				if as, bs := string(ar[si:i]), string(br[sj:j]); as != bs {
					return as < bs
				}
			}
			continue
		}

		ac, bc := unicode.ToLower(ar[i]), unicode.ToLower(br[j])
		if ac != bc {
			return ac < bc
		}
		i++
		j++
	}

	return len(ar)-i < len(br)-j
}
