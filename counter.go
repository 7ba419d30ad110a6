package singleton

import (
	"fmt"
	"strconv"
)

// ------------------------------------------------------------
// READ-MODIFY-WRITE

// ModifyFunc computes a new attribute value from the current one.
// ok is false when the attribute doesn't exist. Answering write
// false leaves the attribute untouched.
type ModifyFunc func(old string, ok bool) (value string, write bool, err error)

// ReadModifyWrite reads attr with a consistent read, computes the
// new value and writes it back conditioned on the old value. A
// lost race fails the condition and the policy runs the whole cycle
// again. A missing attribute is written unconditionally, since there
// is no old value to condition on.
func ReadModifyWrite(s Store, p RetryPolicy, key, attr string, fn ModifyFunc) error {
	if s == nil {
		return ErrStoreRequired
	}
	return p.Do(func() error {
		attrs, err := s.ReadConsistent(key)
		if err != nil {
			return err
		}
		old, ok := attrs.Value(attr)
		if ok && old == "" {
			ok = false
		}
		value, write, err := fn(old, ok)
		if err != nil || !write {
			return err
		}
		if !ok {
			return s.WriteUnconditional(key, attr, value, true)
		}
		return s.WriteConditional(key, attr, old, value)
	})
}

// ------------------------------------------------------------
// COUNTER

// UpdateCounter adds delta to a numeric attribute and answers the
// new value. Values are stored zero-padded to digits so they sort
// lexically. A missing counter is only created for a positive delta;
// otherwise it stays missing and 0 is answered.
func UpdateCounter(s Store, p RetryPolicy, key, attr string, delta int64, digits int) (int64, error) {
	var next int64
	err := ReadModifyWrite(s, p, key, attr, func(old string, ok bool) (string, bool, error) {
		next = 0
		if !ok {
			if delta <= 0 {
				return "", false, nil
			}
			next = delta
			return padded(next, digits)
		}
		cur, err := strconv.ParseInt(old, 10, 64)
		if err != nil {
			return "", false, fmt.Errorf("counter %v.%v: %w", key, attr, err)
		}
		next = cur + delta
		return padded(next, digits)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// EncodeZeroPadding answers v left-padded with zeros to digits.
func EncodeZeroPadding(v int64, digits int) (string, error) {
	if v < 0 {
		return "", ErrNegativeCounter
	}
	return fmt.Sprintf("%0*d", digits, v), nil
}

func padded(v int64, digits int) (string, bool, error) {
	s, err := EncodeZeroPadding(v, digits)
	return s, err == nil, err
}
