// Package publish sends filtered revolutions to an MQTT broker.
package publish
