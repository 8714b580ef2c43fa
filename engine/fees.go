package engine

// SplitFee divides a gross payout into the recipient's net amount and the
// protocol fee. The fee rounds down; a zero bps rate yields exactly zero.
func SplitFee(gross int64, feeBasisPoints uint32) (net, fee int64) {
	if feeBasisPoints == 0 {
		return gross, 0
	}
	fee = gross * int64(feeBasisPoints) / MaxBasisPoints
	return gross - fee, fee
}

// bpsOf returns amount scaled by a basis-point rate, rounding down.
func bpsOf(amount int64, bps uint32) int64 {
	if bps == 0 {
		return 0
	}
	return amount * int64(bps) / MaxBasisPoints
}

// lateFee is the penalty owed on an overdue contribution. It is computed
// against the base contribution only, not the insurance surcharge.
func (c *Circle) lateFee() int64 {
	return bpsOf(c.Contribution, c.LateFeeBps)
}

// insuranceSurcharge is the per-contribution amount accumulated in the
// circle's insurance fund.
func (c *Circle) insuranceSurcharge() int64 {
	return bpsOf(c.Contribution, c.InsuranceFeeBps)
}
