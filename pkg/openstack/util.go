package openstack

import "github.com/sirupsen/logrus"

func (o *Openstack) Log() *logrus.Entry {
	return o.log
}
