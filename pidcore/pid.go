// Package pidcore implements a single-axis PID controller with derivative on measurement,
// integral separation, a dead band and output clamping. It knows nothing about aircraft.
package pidcore

import (
	"errors"
	"fmt"
	"math"

	"quad-flight-core/utils"
)

// Defaults applied by Init.
const (
	DefaultIntegralLimit = 20.0
	DefaultOutputLimit   = 100.0
	DefaultDeadBand      = 0.0 // disabled
	DefaultMaxErr        = 0.0 // disabled
)

var ErrNegativeLimit = errors.New("pidcore: limit must not be negative")

// Gains is the tunable part of a controller.
type Gains struct {
	Kp         float64 `yaml:"kp"`
	Ki         float64 `yaml:"ki"`
	Kd         float64 `yaml:"kd"`
	ISepThresh float64 `yaml:"i_sep"` // 0 disables integral separation
}

// Controller holds the state of one PID loop. The zero value is not usable; call New or Init.
type Controller struct {
	desired      float64
	measured     float64
	prevMeasured float64
	err          float64

	kp, ki, kd float64

	outP, outI, outD float64
	out              float64

	integral float64
	deriv    float64

	integralLimit float64
	outputLimit   float64
	deadBand      float64
	maxErr        float64
	iSepThresh    float64

	firstUpdate bool
}

// New returns an initialized controller.
func New(desired float64, g Gains) *Controller {
	c := &Controller{}
	c.Init(desired, g)
	return c
}

// Init zeroes all running state, applies g and restores the default limits.
func (c *Controller) Init(desired float64, g Gains) {
	*c = Controller{
		desired:       desired,
		kp:            g.Kp,
		ki:            g.Ki,
		kd:            g.Kd,
		iSepThresh:    utils.Abs(g.ISepThresh),
		integralLimit: DefaultIntegralLimit,
		outputLimit:   DefaultOutputLimit,
		deadBand:      DefaultDeadBand,
		maxErr:        DefaultMaxErr,
		firstUpdate:   true,
	}
}

// Reset clears error, integral, derivative and outputs and re-arms the first-update guard so
// the next derivative is zero. Gains and limits are kept.
func (c *Controller) Reset() {
	c.err = 0
	c.measured = 0
	c.prevMeasured = 0
	c.outP, c.outI, c.outD, c.out = 0, 0, 0, 0
	c.integral = 0
	c.deriv = 0
	c.firstUpdate = true
}

// Calculate runs one control step and returns the clamped output. A non-finite measured or
// target value leaves the state untouched and returns the held output.
func (c *Controller) Calculate(measured, target float64) float64 {
	if !finite(measured) || !finite(target) {
		return c.out
	}
	c.desired = target
	c.measured = measured

	e := c.desired - c.measured

	if c.firstUpdate {
		c.prevMeasured = measured
		c.firstUpdate = false
	}

	// inside the dead band the previous output is held
	if c.deadBand > 0 && e > -c.deadBand && e < c.deadBand {
		c.prevMeasured = measured
		c.out = utils.ClampAbs(c.out, c.outputLimit)
		return c.out
	}

	if c.maxErr > 0 {
		e = utils.ClampAbs(e, c.maxErr)
	}
	c.err = e

	if c.iSepThresh <= 0 || utils.Abs(e) < c.iSepThresh {
		c.integral += e
	}
	c.integral = utils.ClampAbs(c.integral, c.integralLimit)

	c.deriv = c.prevMeasured - c.measured

	c.outP = c.kp * c.err
	c.outI = c.ki * c.integral
	c.outD = c.kd * c.deriv

	out := utils.ClampAbs(c.outP+c.outI+c.outD, c.outputLimit)

	c.prevMeasured = c.measured
	c.out = out
	return out
}

func (c *Controller) SetKp(kp float64) { c.kp = kp }
func (c *Controller) SetKi(ki float64) { c.ki = ki }
func (c *Controller) SetKd(kd float64) { c.kd = kd }

// SetGains retunes the controller without touching its history.
func (c *Controller) SetGains(g Gains) error {
	if err := c.SetISepThresh(g.ISepThresh); err != nil {
		return err
	}
	c.kp, c.ki, c.kd = g.Kp, g.Ki, g.Kd
	return nil
}

func (c *Controller) SetDesired(desired float64) { c.desired = desired }

// SetIntegralLimit also pulls an already accumulated integral back inside the new limit.
func (c *Controller) SetIntegralLimit(limit float64) error {
	if err := checkLimit("integral limit", limit); err != nil {
		return err
	}
	c.integralLimit = limit
	c.integral = utils.ClampAbs(c.integral, limit)
	return nil
}

// SetOutputLimit sets the symmetric output bound and pulls the held output inside it. A limit
// of 0 pins the output to 0.
func (c *Controller) SetOutputLimit(limit float64) error {
	if err := checkLimit("output limit", limit); err != nil {
		return err
	}
	c.outputLimit = limit
	c.out = utils.ClampAbs(c.out, limit)
	return nil
}

// SetDeadBand sets the error band inside which the previous output is held. 0 disables it.
func (c *Controller) SetDeadBand(deadBand float64) error {
	if err := checkLimit("dead band", deadBand); err != nil {
		return err
	}
	c.deadBand = deadBand
	return nil
}

// SetMaxErr bounds the error magnitude used by the loop. 0 disables it.
func (c *Controller) SetMaxErr(maxErr float64) error {
	if err := checkLimit("max error", maxErr); err != nil {
		return err
	}
	c.maxErr = maxErr
	return nil
}

// SetISepThresh suspends integration while |error| >= thresh. 0 disables separation.
func (c *Controller) SetISepThresh(thresh float64) error {
	if err := checkLimit("integral separation threshold", thresh); err != nil {
		return err
	}
	c.iSepThresh = thresh
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func checkLimit(name string, v float64) error {
	if !(v >= 0) {
		return fmt.Errorf("%s %g: %w", name, v, ErrNegativeLimit)
	}
	return nil
}

func (c *Controller) Gains() Gains {
	return Gains{Kp: c.kp, Ki: c.ki, Kd: c.kd, ISepThresh: c.iSepThresh}
}

func (c *Controller) Output() float64        { return c.out }
func (c *Controller) Integral() float64      { return c.integral }
func (c *Controller) OutputLimit() float64   { return c.outputLimit }
func (c *Controller) IntegralLimit() float64 { return c.integralLimit }

// Diagnostics is a copy of the controller's internal terms for logging and telemetry.
type Diagnostics struct {
	Desired  float64
	Measured float64
	Error    float64
	Integral float64
	Deriv    float64
	P, I, D  float64
	Out      float64
}

func (c *Controller) Diagnostics() Diagnostics {
	return Diagnostics{
		Desired:  c.desired,
		Measured: c.measured,
		Error:    c.err,
		Integral: c.integral,
		Deriv:    c.deriv,
		P:        c.outP,
		I:        c.outI,
		D:        c.outD,
		Out:      c.out,
	}
}
