package kpireward

// CheckFresh rejects claims whose timestamp lies more than maxAge seconds in
// the past relative to now. Future dated claims are accepted. The age is
// computed on unsigned values so extreme timestamps cannot overflow.
func CheckFresh(claimTimestamp, now, maxAge int64) error {
	if claimTimestamp >= now {
		return nil
	}
	age := uint64(now) - uint64(claimTimestamp)
	if maxAge < 0 || age > uint64(maxAge) {
		return ErrStaleData
	}
	return nil
}
