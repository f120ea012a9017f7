package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttcore"
)

type program struct {
	server     mqttcore.Server
	configFlag string
	execDir    string
}

func (p *program) Start(s service.Service) error {
	if p.configFlag != "" {
		if err := p.server.LoadFromFile(p.configFlag); err != nil {
			return err
		}
		log.Infoln("Using config file:", p.configFlag)
	} else {
		toTry := filepath.Join(p.execDir, "config.json")
		if fileExists(toTry) {
			if err := p.server.LoadFromFile(toTry); err != nil {
				return err
			}
			log.Infoln("Using config file:", toTry)
		} else {
			log.Infoln("No config file specified or found. Using defaults.")
		}
	}

	if a := newAuther(&p.server.Config); a != nil {
		p.server.Auther = a
		log.WithFields(log.Fields{
			"users":        len(p.server.Auth.Users),
			"allow_guests": p.server.Auth.AllowGuests,
		}).Info("Authentication enabled")
	}

	go func() {
		if err := p.server.Run(); err != nil {
			log.Fatal(err)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.server.Stop()
	return nil
}

func main() {
	svcFlag := flag.String("service", "", "Control the system service.")
	cnfFlag := flag.String("c", "", "Path of config file.")
	flag.Parse()

	ePath, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}
	eDir, _ := filepath.Split(ePath)

	// Set defaults before config override.
	if service.Interactive() {
		log.SetLevel(log.DebugLevel)
	} else {
		f, err := os.OpenFile(filepath.Join(eDir, "mqttcore.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal(err)
		}
		log.SetOutput(f)
	}

	prg := program{configFlag: *cnfFlag, execDir: eDir}
	svcConfig := service.Config{
		Name:        "mqttcore",
		DisplayName: "mqttcore MQTT server",
		Description: "MQTT 3.1.1 connection and session server.",
	}

	s, err := service.New(&prg, &svcConfig)
	if err != nil {
		log.Fatal(err)
	}

	if *svcFlag != "" {
		if err := service.Control(s, *svcFlag); err != nil {
			log.Printf("Valid actions: %q\n", service.ControlAction)
			log.Fatal(err)
		}
		return
	}

	if err = s.Run(); err != nil {
		log.Fatal(err)
	}
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
