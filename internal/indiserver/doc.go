// Package indiserver runs indiserver as a supervised child process.
//
// When the camera service owns the INDI server, drivers are listed in the
// YAML configuration and the service starts them before connecting:
//
//	indi:
//	  port: 7624
//	  server:
//	    managed: true
//	    binary: "/usr/bin/indiserver"
//	    drivers: ["indi_simulator_ccd"]
//
// The manager restarts the server when it crashes or stops accepting
// connections, and shuts the whole process group down on Stop so driver
// processes do not outlive it.
package indiserver
