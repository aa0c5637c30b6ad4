package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/chat-proxy/config"
)

var _ = Describe("Config", func() {
	var (
		tempDir string
		origDir string
	)

	BeforeEach(func() {
		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Chdir(tempDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tempDir)
		os.Unsetenv("PORT")
		os.Unsetenv("GATEWAY_PORT")
		os.Unsetenv("BACKEND_TIMEOUT")
		os.Unsetenv("CHAT_PAGE")
	})

	Describe("Load", func() {
		Context("without a config file", func() {
			It("should use the defaults", func() {
				cfg, err := config.Load(viper.New(), "")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Host).To(Equal(config.DefaultHost))
				Expect(cfg.Server.Port).To(Equal(config.DefaultPort))
				Expect(cfg.Backend.Port).To(Equal(config.DefaultBackendPort))
				Expect(cfg.BackendTimeout()).To(Equal(120 * time.Second))
				Expect(cfg.ListenAddr()).To(Equal("127.0.0.1:18789"))
				Expect(cfg.BackendAddr()).To(Equal("127.0.0.1:18790"))
			})

			It("should read the short port variables", func() {
				os.Setenv("PORT", "9000")
				os.Setenv("GATEWAY_PORT", "9001")

				cfg, err := config.Load(viper.New(), "")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Port).To(Equal(9000))
				Expect(cfg.Backend.Port).To(Equal(9001))
			})

			It("should read the chat page variable", func() {
				os.Setenv("CHAT_PAGE", "/srv/chat/index.html")

				cfg, err := config.Load(viper.New(), "")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Static.Page).To(Equal("/srv/chat/index.html"))
			})

			It("should read nested keys from the environment", func() {
				os.Setenv("BACKEND_TIMEOUT", "5s")

				cfg, err := config.Load(viper.New(), "")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.BackendTimeout()).To(Equal(5 * time.Second))
			})

			It("should reject equal front and backend ports", func() {
				os.Setenv("PORT", "9000")
				os.Setenv("GATEWAY_PORT", "9000")

				cfg, err := config.Load(viper.New(), "")
				Expect(err).To(HaveOccurred())
				Expect(cfg).To(BeNil())
			})
		})

		Context("with a config file", func() {
			BeforeEach(func() {
				configContent := `
server:
  port: 28789
  environment: "prod"

backend:
  port: 28790
  timeout: "30s"
  probe_interval: "0s"

static:
  page: "/srv/chat/index.html"

logging:
  level: "debug"
`
				err := os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(configContent), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load the file", func() {
				cfg, err := config.Load(viper.New(), "")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Port).To(Equal(28789))
				Expect(cfg.Server.Environment).To(Equal(config.EnvProd))
				Expect(cfg.Static.Page).To(Equal("/srv/chat/index.html"))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelDebug))
				Expect(cfg.ProbeInterval()).To(BeZero())
			})

			It("should let the environment override the file", func() {
				os.Setenv("GATEWAY_PORT", "28800")

				cfg, err := config.Load(viper.New(), "")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Backend.Port).To(Equal(28800))
			})

			It("should load an explicit file path", func() {
				path := filepath.Join(tempDir, "other.yaml")
				Expect(os.WriteFile(path, []byte("backend:\n  port: 30000\n"), 0644)).To(Succeed())

				cfg, err := config.Load(viper.New(), path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Backend.Port).To(Equal(30000))
			})

			It("should fail on a malformed file", func() {
				path := filepath.Join(tempDir, "broken.yaml")
				Expect(os.WriteFile(path, []byte("server: [unterminated"), 0644)).To(Succeed())

				_, err := config.Load(viper.New(), path)
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			cfg = &config.Config{
				Server:  config.ServerConfig{Host: "127.0.0.1", Port: 18789, Environment: config.EnvDev},
				Backend: config.BackendConfig{Port: 18790, Timeout: "120s", ProbeInterval: "15s"},
				Static:  config.StaticConfig{Page: "index.html"},
				Logging: config.LoggingConfig{Level: config.LogLevelInfo},
				Metrics: config.MetricsConfig{ReportInterval: "1m"},
			}
		})

		It("should accept a valid config", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should accept localhost and IPv6 loopback", func() {
			cfg.Server.Host = "localhost"
			Expect(cfg.Validate()).To(Succeed())
			cfg.Server.Host = "::1"
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject a non-loopback host", func() {
			cfg.Server.Host = "0.0.0.0"
			Expect(cfg.Validate()).NotTo(Succeed())
			cfg.Server.Host = "192.168.1.10"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject out of range ports", func() {
			cfg.Backend.Port = 70000
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a zero timeout", func() {
			cfg.Backend.Timeout = "0s"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an unparseable probe interval", func() {
			cfg.Backend.ProbeInterval = "often"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an unknown log level", func() {
			cfg.Logging.Level = "verbose"
			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a missing page", func() {
			cfg.Static.Page = ""
			Expect(cfg.Validate()).NotTo(Succeed())
		})
	})
})
