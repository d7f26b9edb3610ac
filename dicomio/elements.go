package dicomio

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// item is one dataset or sequence item, viewed as a flat list of elements.
type item []*dicom.Element

func (it item) find(t tag.Tag) *dicom.Element {
	for _, el := range it {
		if el != nil && el.Tag == t {
			return el
		}
	}
	return nil
}

func (it item) str(t tag.Tag) string {
	el := it.find(t)
	if el == nil || el.Value == nil || el.Value.ValueType() != dicom.Strings {
		return ""
	}
	vals := dicom.MustGetStrings(el.Value)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(vals[0]), "\x00")
}

// ints returns integer values, whether stored binary (US, UL) or as text (IS).
func (it item) ints(t tag.Tag) ([]int, error) {
	el := it.find(t)
	if el == nil || el.Value == nil {
		return nil, nil
	}
	switch el.Value.ValueType() {
	case dicom.Ints:
		return dicom.MustGetInts(el.Value), nil
	case dicom.Strings:
		strs := dicom.MustGetStrings(el.Value)
		vals := make([]int, 0, len(strs))
		for _, s := range strs {
			s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
			if s == "" {
				continue
			}
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("tag %s: bad integer %q", t, s)
			}
			vals = append(vals, v)
		}
		return vals, nil
	}
	return nil, fmt.Errorf("tag %s: expected integer value, got %v", t, el.Value.ValueType())
}

func (it item) integer(t tag.Tag) (int, bool, error) {
	vals, err := it.ints(t)
	if err != nil || len(vals) == 0 {
		return 0, false, err
	}
	return vals[0], true, nil
}

// floats returns decimal values, whether stored as text (DS) or binary (FD, FL).
func (it item) floats(t tag.Tag) ([]float64, error) {
	el := it.find(t)
	if el == nil || el.Value == nil {
		return nil, nil
	}
	switch el.Value.ValueType() {
	case dicom.Floats:
		return dicom.MustGetFloats(el.Value), nil
	case dicom.Strings:
		strs := dicom.MustGetStrings(el.Value)
		vals := make([]float64, 0, len(strs))
		for _, s := range strs {
			s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
			if s == "" {
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("tag %s: bad decimal %q", t, s)
			}
			vals = append(vals, v)
		}
		return vals, nil
	}
	return nil, fmt.Errorf("tag %s: expected decimal value, got %v", t, el.Value.ValueType())
}

// items returns the items of a sequence element, or nil if absent.
func (it item) items(t tag.Tag) []item {
	el := it.find(t)
	if el == nil || el.Value == nil || el.Value.ValueType() != dicom.Sequences {
		return nil
	}
	seqItems, ok := el.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	out := make([]item, 0, len(seqItems))
	for _, si := range seqItems {
		elems, _ := si.GetValue().([]*dicom.Element)
		out = append(out, item(elems))
	}
	return out
}

// first returns the first item of a sequence, or nil.
func (it item) first(t tag.Tag) item {
	if seq := it.items(t); len(seq) > 0 {
		return seq[0]
	}
	return nil
}

// builder accumulates elements, keeping the first error.
type builder struct {
	elems []*dicom.Element
	err   error
}

func (b *builder) add(t tag.Tag, data interface{}) *dicom.Element {
	if b.err != nil {
		return nil
	}
	el, err := dicom.NewElement(t, data)
	if err != nil {
		b.err = fmt.Errorf("creating element %s: %w", t, err)
		return nil
	}
	b.elems = append(b.elems, el)
	return el
}

func (b *builder) str(t tag.Tag, s string) {
	if s != "" {
		b.add(t, []string{s})
	}
}

func (b *builder) uint(t tag.Tag, vals ...int) {
	b.add(t, vals)
}

func (b *builder) decimals(t tag.Tag, vals ...float64) {
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = formatDS(v)
	}
	b.add(t, strs)
}

func (b *builder) sequence(t tag.Tag, items ...[]*dicom.Element) {
	if len(items) == 0 {
		return
	}
	for _, it := range items {
		sortElements(it)
	}
	b.add(t, items)
}

// done returns the sorted elements.
func (b *builder) done() ([]*dicom.Element, error) {
	if b.err != nil {
		return nil, b.err
	}
	sortElements(b.elems)
	return b.elems, nil
}

func sortElements(elems []*dicom.Element) {
	sort.SliceStable(elems, func(i, j int) bool {
		ti, tj := elems[i].Tag, elems[j].Tag
		if ti.Group != tj.Group {
			return ti.Group < tj.Group
		}
		return ti.Element < tj.Element
	})
}

// formatDS formats a decimal string within the 16 byte limit of the DS VR.
func formatDS(v float64) string {
	for prec := 10; prec > 0; prec-- {
		s := strconv.FormatFloat(v, 'g', prec, 64)
		if len(s) <= 16 {
			return s
		}
	}
	return strconv.FormatFloat(v, 'e', 6, 64)
}

func formatIS(v int) string {
	return strconv.Itoa(v)
}
