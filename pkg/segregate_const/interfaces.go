package segregate

import "github.com/sirupsen/logrus"

type Segregate interface {
	Version() string
	Log() *logrus.Entry
}
