package training

import (
	"math"
	"math/rand/v2"
)

// StratifiedSplit shuffles each label class with a seeded source and moves
// testFraction of it into the test set, so both sets keep the class ratio.
func StratifiedSplit(samples []Sample, testFraction float64, seed uint64) (train, test []Sample) {
	rnd := rand.New(rand.NewPCG(seed, seed))

	byLabel := map[int][]Sample{}
	for _, s := range samples {
		byLabel[s.Label] = append(byLabel[s.Label], s)
	}

	// fixed class order keeps the split reproducible
	for _, label := range []int{0, 1} {
		group := byLabel[label]
		rnd.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })

		nTest := int(math.Round(float64(len(group)) * testFraction))
		test = append(test, group[:nTest]...)
		train = append(train, group[nTest:]...)
	}

	rnd.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	return train, test
}
