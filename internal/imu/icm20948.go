package imu

import (
	"fmt"
	"math"
	"time"

	"navcore/internal/orientation"
)

var sleep = time.Sleep

// ICM-20948 register map. Bank 0 unless noted.
const (
	DefaultAddress    uint16 = 0x68
	DefaultMagAddress uint16 = 0x0C

	regWhoAmI     = 0x00
	whoAmIICM     = 0xEA
	regUserCtrl   = 0x03
	regPwrMgmt1   = 0x06
	regIntPinCfg  = 0x0F
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D // accel then gyro, 12 bytes big-endian
	regBankSel    = 0x7F

	pwrReset   = 0x80
	pwrAutoClk = 0x01
	bypassEn   = 0x02

	// Bank 2.
	regGyroSmplrtDiv  = 0x00
	regGyroConfig1    = 0x01
	regAccelSmplrtDv2 = 0x11
	regAccelConfig    = 0x14

	gyroFS500  = 0x01 << 1
	accelFS4G  = 0x01 << 1
	baseRateHz = 1125
	sampleHz   = 100
)

// AK09916 magnetometer, reachable on the host bus once bypass is enabled.
const (
	magRegWIA2  = 0x01
	magWIA2     = 0x09
	magRegST1   = 0x10 // ST1, HXL..HZH, TMPS, ST2
	magRegCNTL2 = 0x31
	magRegCNTL3 = 0x32

	magDataReady = 0x01
	magOverflow  = 0x08
	magCont100Hz = 0x08
	magSoftReset = 0x01
	magUTPerLSB  = 0.15
)

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

// Reading is one sample in the compass frame: x forward, y left, z up, with
// the chip's x axis toward the front of the device.
type Reading struct {
	Time time.Time
	// Accel is specific force in m/s^2.
	Accel orientation.Vector3
	// Gyro is angular rate in rad/s.
	Gyro orientation.Vector3
	// Mag is the field in uT. MagOK is false when the magnetometer had no
	// fresh sample or overflowed.
	Mag   orientation.Vector3
	MagOK bool
}

// ICM20948 reads accelerometer, gyroscope and magnetometer from one chip.
type ICM20948 struct {
	imu regIO
	mag regIO

	bank       byte
	accelScale float64
	gyroScale  float64
}

// NewICM20948 probes and configures the IMU at imu and its magnetometer at
// mag. Both must answer with the expected identity.
func NewICM20948(imu, mag regIO) (*ICM20948, error) {
	if imu == nil || mag == nil {
		return nil, fmt.Errorf("icm20948: nil device")
	}
	d := &ICM20948{imu: imu, mag: mag, bank: 0xFF}

	who, err := imu.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIICM {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIICM)
	}
	if err := d.initIMU(); err != nil {
		return nil, err
	}
	if err := d.initMag(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *ICM20948) initIMU() error {
	if err := d.setBank(0); err != nil {
		return err
	}
	_ = d.imu.WriteReg(regIntEnable, 0x00)
	if err := d.imu.WriteReg(regPwrMgmt1, pwrReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)
	// Reset returns to bank 0.
	d.bank = 0
	if err := d.imu.WriteReg(regPwrMgmt1, pwrAutoClk); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.setBank(2); err != nil {
		return err
	}
	div := byte(baseRateHz/sampleHz - 1)
	_ = d.imu.WriteReg(regGyroSmplrtDiv, div)
	_ = d.imu.WriteReg(regAccelSmplrtDv2, div)
	if err := d.imu.WriteReg(regGyroConfig1, gyroFS500); err != nil {
		return fmt.Errorf("icm20948: gyro config failed: %w", err)
	}
	if err := d.imu.WriteReg(regAccelConfig, accelFS4G); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}
	if err := d.setBank(0); err != nil {
		return err
	}

	// Hand the auxiliary bus to the host so the magnetometer shows up at its
	// own address.
	if err := d.imu.WriteReg(regUserCtrl, 0x00); err != nil {
		return fmt.Errorf("icm20948: disable i2c master failed: %w", err)
	}
	if err := d.imu.WriteReg(regIntPinCfg, bypassEn); err != nil {
		return fmt.Errorf("icm20948: enable bypass failed: %w", err)
	}

	d.accelScale = 4.0 / 32768.0 * orientation.StandardGravity
	d.gyroScale = 500.0 / 32768.0 * math.Pi / 180
	return nil
}

func (d *ICM20948) initMag() error {
	who, err := d.mag.ReadRegU8(magRegWIA2)
	if err != nil {
		return fmt.Errorf("ak09916: whoami read failed: %w", err)
	}
	if who != magWIA2 {
		return fmt.Errorf("ak09916: whoami=0x%02X want 0x%02X", who, magWIA2)
	}
	if err := d.mag.WriteReg(magRegCNTL3, magSoftReset); err != nil {
		return fmt.Errorf("ak09916: reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	if err := d.mag.WriteReg(magRegCNTL2, magCont100Hz); err != nil {
		return fmt.Errorf("ak09916: mode failed: %w", err)
	}
	return nil
}

func (d *ICM20948) setBank(bank byte) error {
	if d.bank == bank {
		return nil
	}
	if err := d.imu.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: select bank %d failed: %w", bank, err)
	}
	d.bank = bank
	return nil
}

// Read returns the latest sample. A magnetometer without fresh data is not
// an error; MagOK reports it.
func (d *ICM20948) Read() (Reading, error) {
	if err := d.setBank(0); err != nil {
		return Reading{}, err
	}
	var b [12]byte
	if err := d.imu.ReadReg(regAccelXoutH, b[:]); err != nil {
		return Reading{}, fmt.Errorf("icm20948: read failed: %w", err)
	}
	be := func(i int) float64 { return float64(int16(uint16(b[i])<<8 | uint16(b[i+1]))) }

	r := Reading{
		Time:  time.Now().UTC(),
		Accel: orientation.Vector3{X: be(0) * d.accelScale, Y: be(2) * d.accelScale, Z: be(4) * d.accelScale},
		Gyro:  orientation.Vector3{X: be(6) * d.gyroScale, Y: be(8) * d.gyroScale, Z: be(10) * d.gyroScale},
	}

	// ST2 must be read to release the data registers.
	var m [9]byte
	if err := d.mag.ReadReg(magRegST1, m[:]); err != nil {
		return Reading{}, fmt.Errorf("ak09916: read failed: %w", err)
	}
	if m[0]&magDataReady != 0 && m[8]&magOverflow == 0 {
		le := func(i int) float64 { return float64(int16(uint16(m[i+1])<<8|uint16(m[i]))) * magUTPerLSB }
		// The magnetometer's y and z axes point opposite to the IMU's.
		r.Mag = orientation.Vector3{X: le(1), Y: -le(3), Z: -le(5)}
		r.MagOK = true
	}
	return r, nil
}
