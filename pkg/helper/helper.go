package helper

import (
	"time"

	"github.com/sirupsen/logrus"
)

// CheckError prints errors to the standard log
func CheckError(err error) {
	if err != nil {
		logrus.Error(err)
	}
}

// Retry runs op up to attempts times, sleeping delay(attempt) after each
// failure. The last error is returned when every attempt fails.
func Retry(attempts int, delay func(attempt int) time.Duration, op func() error) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i < attempts && delay != nil {
			time.Sleep(delay(i))
		}
	}
	return err
}

// LinearDelay returns a delay function that grows by step with every attempt.
func LinearDelay(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}
