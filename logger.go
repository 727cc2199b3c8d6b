package wifisim

import (
	"os"

	"github.com/sirupsen/logrus"
)

// category field used on every log entry
const fieldCategory = "category"

var (
	Log     *logrus.Logger
	MainLog *logrus.Entry
	CfgLog  *logrus.Entry
	TopoLog *logrus.Entry
	PhyLog  *logrus.Entry
	MacLog  *logrus.Entry
	BrLog   *logrus.Entry
	IPLog   *logrus.Entry
	TcpLog  *logrus.Entry
	AppLog  *logrus.Entry
)

func init() {
	Log = logrus.New()
	Log.SetOutput(os.Stderr)
	Log.SetLevel(logrus.WarnLevel)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    false,
		DisableTimestamp: true,
	})

	MainLog = Log.WithField(fieldCategory, "Main")
	CfgLog = Log.WithField(fieldCategory, "CFG")
	TopoLog = Log.WithField(fieldCategory, "Topo")
	PhyLog = Log.WithField(fieldCategory, "Phy")
	MacLog = Log.WithField(fieldCategory, "Mac")
	BrLog = Log.WithField(fieldCategory, "Bridge")
	IPLog = Log.WithField(fieldCategory, "IP")
	TcpLog = Log.WithField(fieldCategory, "TCP")
	AppLog = Log.WithField(fieldCategory, "App")
}

// SetLogLevel parses a logrus level name ("debug", "info", ...) and applies it
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Log.SetLevel(lvl)
	return nil
}
