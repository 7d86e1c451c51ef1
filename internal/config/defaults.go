package config

import "time"

// getDefaultConfig retorna uma configuração padrão
func getDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
			MaxWSClients:    32,
		},
		Cameras: CamerasConfig{
			IDs:           []int{1, 2, 3, 4},
			DisplayCamera: 1,
		},
		Calibration: CalibrationConfig{
			Dir:         "calib",
			FilePattern: "calib_rt%d.json",
		},
		Redis: RedisConfig{
			Host:           "localhost",
			Port:           6379,
			Password:       "",
			DB:             0,
			Prefix:         "GoalTracker",
			Enabled:        true,
			FrameTopic:     "CameraGateway.%d.Frame",
			DetectionTopic: "Tiffany.%d.Detection",
			BufferSize:     64,
		},
		Tracker: TrackerConfig{
			TickInterval:  Duration(50 * time.Millisecond),
			PollTimeout:   Duration(100 * time.Millisecond),
			StaleAfter:    Duration(time.Second),
			StatsInterval: Duration(time.Minute),
			Annotate:      true,
		},
		Goal: GoalConfig{
			Mode: GoalModeRemote,
		},
		PLC: PLCConfig{
			Enabled:      false,
			Host:         "192.168.1.100",
			Rack:         0,
			Slot:         1,
			DBNumber:     100,
			UpdateRate:   Duration(200 * time.Millisecond),
			ReadTimeout:  Duration(5 * time.Second),
			WriteTimeout: Duration(5 * time.Second),
		},
		Discovery: DiscoveryConfig{
			Enabled:  true,
			Instance: "GoalTracker",
			Service:  "_goaltrack._tcp",
		},
		Log: LogConfig{
			Level:  "info",
			Dir:    "logs",
			Prefix: "goaltracker",
		},
	}
}
