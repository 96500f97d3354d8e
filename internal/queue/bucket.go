package queue

import "fmt"

// Bucket returns the lower bound of the rating bucket containing rating.
// Uses mathematical floor so negative ratings round toward -inf and
// bucket membership stays monotone: Bucket(r) <= r < Bucket(r)+step.
func Bucket(rating, step int) int {
	b := rating / step
	if rating < 0 && rating%step != 0 {
		b--
	}
	return b * step
}

// Key builds the partition key "<time_control>#<bucket>" for the queue index.
func Key(timeControl string, bucket int) string {
	return fmt.Sprintf("%s#%d", timeControl, bucket)
}
