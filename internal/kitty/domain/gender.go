package domain

// DeriveGender maps a payload to a gender by the parity of its length.
// Odd lengths are female; even lengths, including empty, are male.
func DeriveGender(dna []byte) Gender {
	if len(dna)%2 == 1 {
		return GenderFemale
	}
	return GenderMale
}
